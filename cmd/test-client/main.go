package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Wuchinator/product-analytics/internal/demo"
	"github.com/Wuchinator/product-analytics/internal/event"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "event service address")
	users := flag.Int("users", 20, "number of synthetic users")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	healthResp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{
		Service: "event-service",
	})
	if err != nil {
		log.Fatalf("Health check failed: %v", err)
	}
	fmt.Printf("Health check: %s\n\n", healthResp.GetStatus())

	opts := demo.DefaultOptions(time.Now().UTC())
	opts.Users = *users
	opts.Days = 7
	events := demo.Generate(opts)

	fmt.Printf("Sending %d events for project %s\n", len(events), opts.ProjectID)

	req, err := event.EncodeEvents(events)
	if err != nil {
		log.Fatalf("Failed to encode events: %v", err)
	}

	resp, err := event.NewClient(conn).TrackEvents(ctx, req)
	if err != nil {
		log.Fatalf("Failed to track events: %v", err)
	}

	fields := resp.GetFields()
	fmt.Printf("Batch processed: %.0f accepted, %.0f stored\n",
		fields["accepted"].GetNumberValue(),
		fields["stored"].GetNumberValue(),
	)
}
