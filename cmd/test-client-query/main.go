package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Wuchinator/product-analytics/internal/config"
	"github.com/Wuchinator/product-analytics/internal/demo"
	"github.com/Wuchinator/product-analytics/internal/query"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	addr := flag.String("addr", "localhost:50052", "query service address")
	project := flag.String("project", demo.ProjectID.String(), "project id")
	rangeDays := flag.Int("range", 30, fmt.Sprintf("window in days, e.g. %v", config.RangePresets))
	stored := flag.Bool("stored", false, "read the last persisted snapshot instead of computing")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := query.EncodeRequest(query.SnapshotRequest{
		ProjectID: *project,
		RangeDays: *rangeDays,
		Stored:    *stored,
	})
	if err != nil {
		log.Fatalf("Failed to encode request: %v", err)
	}

	resp, err := query.NewClient(conn).GetSnapshot(ctx, req)
	if err != nil {
		log.Fatalf("Failed to get snapshot: %v", err)
	}

	snap, err := query.DecodeSnapshot(resp)
	if err != nil {
		log.Fatalf("Failed to decode snapshot: %v", err)
	}

	fmt.Printf("Project %s, last %d days (generated %s)\n\n",
		snap.ProjectID, snap.RangeDays, snap.GeneratedAt.Format(time.RFC3339))

	fmt.Printf("Sessions: %d | Page views: %d | Conversion: %.1f%% | Day-1 retention: %.1f%%\n\n",
		snap.KPIs.SessionCount,
		snap.KPIs.TotalPageViews,
		snap.KPIs.ConversionRate,
		snap.KPIs.Day1Retention,
	)

	fmt.Println("Funnel:")
	for _, step := range snap.Funnel {
		fmt.Printf("   %-20s %d\n", step.Step, step.Users)
	}

	fmt.Printf("\nRetention (cohort %d, %s):\n", snap.Retention.CohortSize, snap.RetentionEvent)
	for _, row := range snap.Retention.Rows {
		fmt.Printf("   day %-3d %4d users  %5.1f%%\n", row.Day, row.Retained, row.Percentage)
	}

	fmt.Println("\nTop pages:")
	for i, page := range snap.PageBreakdown {
		if i >= 5 {
			break
		}
		fmt.Printf("   %d. %s: %d views\n", i+1, page.Path, page.Count)
	}

	entries := make([]string, 0, len(snap.Sessions.EntryPages))
	for _, p := range snap.Sessions.EntryPages {
		entries = append(entries, fmt.Sprintf("%s(%d)", p.Path, p.Count))
	}
	fmt.Printf("\nAvg session: %.0f ms, %.1f pages; entry pages: %s\n",
		snap.Sessions.AvgDurationMs,
		snap.Sessions.AvgPagesPerSession,
		strings.Join(entries, ", "),
	)
}
