package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"stackharvest/cmd/harvester/commands"
	"stackharvest/lib/serviceutil"
	"stackharvest/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.InitSlog(false)

	tel, err := telemetry.SetupFromEnv(ctx, "harvester")
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("no telemetry.json5 found, telemetry is disabled")
	} else if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	} else {
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	}

	commands.ExecuteContext(ctx)
}
