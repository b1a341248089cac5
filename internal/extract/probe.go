package extract

import (
	"context"
	"time"

	"github.com/angelmondragon/salesmetrics-etl/pkg/db"
	"github.com/angelmondragon/salesmetrics-etl/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesmetrics-etl/pkg/errors"
	"github.com/angelmondragon/salesmetrics-etl/pkg/logger"
)

// ProbeResult describes a reachable source database.
type ProbeResult struct {
	Driver        enums.DBDriver `json:"driver"`
	ServerVersion string         `json:"server_version"`
	BaseTables    int64          `json:"base_tables"`
	Latency       time.Duration  `json:"latency"`
}

// Prober checks that the source database accepts queries.
type Prober struct {
	client *db.Client
	logg   *logger.Logger
}

func NewProber(client *db.Client, logg *logger.Logger) *Prober {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Prober{client: client, logg: logg}
}

// Probe pings the database, then reads its version and counts its base tables.
func (p *Prober) Probe(ctx context.Context) (ProbeResult, error) {
	start := time.Now()
	res := ProbeResult{Driver: p.client.Driver()}

	if err := p.client.Ping(ctx); err != nil {
		return res, probeError(err, "source database unreachable")
	}
	if err := p.client.Raw(ctx, versionQuery(res.Driver)).Row().Scan(&res.ServerVersion); err != nil {
		return res, probeError(err, "reading server version")
	}
	if err := p.client.Raw(ctx, tableCountQuery(res.Driver)).Row().Scan(&res.BaseTables); err != nil {
		return res, probeError(err, "counting tables")
	}
	res.Latency = time.Since(start)

	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"driver":         res.Driver.String(),
		"server_version": res.ServerVersion,
		"base_tables":    res.BaseTables,
		"latency_ms":     res.Latency.Milliseconds(),
	}), "extract.probe.ok")
	return res, nil
}

func versionQuery(driver enums.DBDriver) string {
	switch driver {
	case enums.DBDriverSQLServer:
		return "SELECT @@VERSION"
	case enums.DBDriverPostgres:
		return "SELECT version()"
	case enums.DBDriverMySQL:
		return "SELECT VERSION()"
	default:
		return "SELECT sqlite_version()"
	}
}

func tableCountQuery(driver enums.DBDriver) string {
	if driver == enums.DBDriverSQLite {
		return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	}
	return "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE'"
}

func probeError(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg).WithStage(stageExtract)
}
