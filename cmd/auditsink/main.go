package main

import (
	"context"
	"os/signal"
	"syscall"

	"repairdesk/internal/audit"
	"repairdesk/internal/client"
	"repairdesk/internal/config"
	ch "repairdesk/internal/repository/clickhouse"
	"repairdesk/internal/util"
)

// auditsink drains the audit topic into ClickHouse. It runs as its own
// process so a warehouse outage never touches the API server.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	consumer, err := client.NewKafkaConsumer(cfg, util.Get())
	if err != nil {
		util.Fatal("Failed to initialize Kafka consumer", util.ErrorField(err))
	}
	defer consumer.Close()

	chClient, err := client.NewClickHouseClient(cfg, util.Get())
	if err != nil {
		util.Fatal("Failed to initialize ClickHouse client", util.ErrorField(err))
	}
	defer chClient.Close()

	store := ch.NewAuditStore(chClient, util.Get())
	sink := audit.NewSink(consumer, store, util.Get())

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	util.Info("Audit sink started",
		util.String("environment", cfg.Environment),
		util.String("topic", cfg.Kafka.AuditTopic))

	if err := sink.Run(ctx); err != nil && ctx.Err() == nil {
		util.Fatal("Audit sink failed", util.ErrorField(err))
	}
	util.Info("Audit sink stopped")
}
