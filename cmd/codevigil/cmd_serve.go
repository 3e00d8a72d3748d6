// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/Balmy-afterGlow/CodeVigil/pkg/logging"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis"
	"github.com/Balmy-afterGlow/CodeVigil/services/analysis/gateway"
	"github.com/Balmy-afterGlow/CodeVigil/services/api"
)

// initTracer wires the OTLP trace exporter. Without an endpoint the
// server runs untraced; spans become no-ops.
func initTracer(ctx context.Context) (func(context.Context), error) {
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("codevigil")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// runServe starts the HTTP surface.
func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{Service: "codevigil", JSON: true})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	port := servePort
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "8080"
	}

	cleanup, err := initTracer(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to setup the OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	tuning, err := analysis.LoadTuning(tuningPath)
	if err != nil {
		return err
	}
	gw, err := gateway.NewOpenAIGateway()
	if err != nil {
		return fmt.Errorf("failed to configure reasoning gateway: %w", err)
	}
	store, engine, err := openKnowledge(logger.Slog())
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := analysis.NewPipeline(gw, engine, tuning, logger.Slog())

	router := gin.Default()
	router.Use(otelgin.Middleware("codevigil"))
	api.SetupRoutes(router, pipeline, engine, tuning)

	logger.Info("starting HTTP server", "port", port)
	return router.Run(":" + port)
}
