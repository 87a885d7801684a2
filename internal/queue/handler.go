package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/graphora-ai/graphora/pkg/ecc"
	"github.com/graphora-ai/graphora/pkg/logger"
)

// CheckerFactory assembles the configuration and collaborators for one
// graph's checker. The worker wires it at startup from env.
type CheckerFactory func(graphName string) (ecc.Config, ecc.Dependencies, error)

// ProcessRunMessage handles one run request: it starts the checker for
// the requested graph, or triggers an immediate pass when one is
// already running. A fatal initialization error is returned so the
// message lands in the DLQ instead of retrying forever.
func ProcessRunMessage(ctx context.Context, factory CheckerFactory, msg string) error {
	data := new(RunRequest)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("malformed run request: %w", err)
	}
	if data.GraphName == "" {
		return fmt.Errorf("run request without graph name")
	}
	if data.Method != MethodGraphRAG {
		return fmt.Errorf("unsupported method %q", data.Method)
	}

	if c, ok := ecc.Lookup(data.GraphName); ok {
		logger.Info("[Queue] Checker already running, kicking a pass",
			"graph", data.GraphName, "correlation_id", data.CorrelationID, "state", c.State())
		if err := c.Tick(ctx); err != nil && ecc.IsFatal(err) {
			return err
		}
		return nil
	}

	cfg, deps, err := factory(data.GraphName)
	if err != nil {
		return fmt.Errorf("assembling checker for %s: %w", data.GraphName, err)
	}

	if _, err := ecc.Start(ctx, cfg, deps); err != nil {
		return err
	}
	logger.Info("[Queue] Checker started",
		"graph", data.GraphName, "correlation_id", data.CorrelationID)
	return nil
}
