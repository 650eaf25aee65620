package graph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/asintel/pkg/models"
)

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Store exports persisted scans into a Neo4j asset graph: Domain, Asset
// and IP nodes with HAS_ASSET and RESOLVES_TO relationships.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewStore connects to Neo4j and prepares the schema.
func NewStore(cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	s := &Store{driver: driver, database: cfg.Database}
	if err := s.initializeSchema(ctx); err != nil {
		log.Printf("graph: schema initialization failed: %v", err)
	}
	return s, nil
}

// initializeSchema creates uniqueness constraints for the node keys.
func (s *Store) initializeSchema(ctx context.Context) error {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT domain_name IF NOT EXISTS FOR (d:Domain) REQUIRE d.name IS UNIQUE",
		"CREATE CONSTRAINT asset_subdomain IF NOT EXISTS FOR (a:Asset) REQUIRE a.subdomain IS UNIQUE",
		"CREATE CONSTRAINT ip_address IF NOT EXISTS FOR (i:IP) REQUIRE i.address IS UNIQUE",
	}
	for _, query := range constraints {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

// ExportScan merges one scan record into the graph. Re-exporting the same
// domain updates assets in place.
func (s *Store) ExportScan(ctx context.Context, rec models.ScanRecord) error {
	session := s.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (d:Domain {name: $domain})
			SET d.last_scan_id = $scan_id,
			    d.last_scanned = $timestamp,
			    d.total_assets = $total_assets`,
			map[string]any{
				"domain":       rec.Domain,
				"scan_id":      rec.ScanID,
				"timestamp":    rec.Timestamp,
				"total_assets": rec.TotalAssets,
			})
		if err != nil {
			return nil, err
		}

		for _, a := range rec.Assets {
			_, err := tx.Run(ctx, `
				MATCH (d:Domain {name: $domain})
				MERGE (a:Asset {subdomain: $subdomain})
				SET a.risk_score = $risk_score,
				    a.severity = $severity,
				    a.open_ports = $open_ports
				MERGE (d)-[:HAS_ASSET]->(a)
				MERGE (i:IP {address: $ip})
				MERGE (a)-[:RESOLVES_TO]->(i)
				WITH i
				MATCH (:Asset)-[:RESOLVES_TO]->(i)
				WITH i, count(*) AS n
				SET i.asset_count = n`,
				map[string]any{
					"domain":     rec.Domain,
					"subdomain":  a.Subdomain,
					"risk_score": a.RiskScore,
					"severity":   string(a.Severity),
					"open_ports": toAnySlice(a.OpenPorts),
					"ip":         a.IP,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to export scan %s: %w", rec.ScanID, err)
	}

	log.Printf("graph: exported scan %s (%d assets)", rec.ScanID, len(rec.Assets))
	return nil
}

// Close shuts down the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) newSession(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
}

func toAnySlice(ports []int) []any {
	out := make([]any, len(ports))
	for i, p := range ports {
		out[i] = p
	}
	return out
}
