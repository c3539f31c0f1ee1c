package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ConnectionURI only embeds credentials when both user and password are set.
func ConnectionURI(cfg Config) string {
	creds := ""

	if cfg.User != "" && cfg.Password != "" {
		creds = url.UserPassword(cfg.User, cfg.Password).String() + "@"
	}

	return fmt.Sprintf("mongodb://%s%s:%d/", creds, cfg.Host, cfg.Port)
}

// New connects once; the client is meant to be held for the life of the process.
func New(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("missing host")
	}

	if cfg.Port <= 0 {
		return nil, errors.New("missing port")
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(ConnectionURI(cfg)).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	err = client.Ping(pingCtx, readpref.Primary())
	if err != nil {
		log.Printf("MongoDB at %s:%d did not answer ping: %v", cfg.Host, cfg.Port, err)

		_ = client.Disconnect(ctx)

		return nil, err
	}

	return client, nil
}
