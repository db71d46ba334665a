package neo4jdb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

// Settings is the connection surface neo4jdb needs, kept separate from
// internal/config's ontology/predicate/threshold knobs since these are
// deployment secrets, not domain configuration.
type Settings struct {
	URI            string
	User           string
	Password       string
	Database       string
	TimeoutSeconds int
	MaxPoolSize    int
}

// New builds a driver from explicit Settings, verifying connectivity
// before returning. A blank URI is treated as "Neo4j sync disabled" and
// returns a nil client with no error, matching NewFromEnv's prior
// best-effort behavior.
func New(settings Settings, log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	if strings.TrimSpace(settings.URI) == "" {
		return nil, nil
	}

	user := settings.User
	if user == "" {
		user = "neo4j"
	}
	timeoutSec := settings.TimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	maxPool := settings.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	auth := neo4j.BasicAuth(user, settings.Password, "")
	driver, err := neo4j.NewDriverWithContext(settings.URI, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	return &Client{
		Driver:   driver,
		Database: settings.Database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

// NewFromEnv reads NEO4J_URI/USER/PASSWORD/DATABASE/TIMEOUT_SECONDS/
// MAX_POOL_SIZE and delegates to New; this is the process entrypoint's
// default, since connection secrets belong in the environment rather than
// the checked-in domain config files.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	settings := Settings{
		URI:      strings.TrimSpace(os.Getenv("NEO4J_URI")),
		User:     strings.TrimSpace(os.Getenv("NEO4J_USER")),
		Password: strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")),
		Database: strings.TrimSpace(os.Getenv("NEO4J_DATABASE")),
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			settings.TimeoutSeconds = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_MAX_POOL_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			settings.MaxPoolSize = parsed
		}
	}
	return New(settings, log)
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
