package database

import "errors"

var (
	ErrEmptyConnectionURL     = errors.New("empty connection URL")
	ErrFailedToParseRedisURL  = errors.New("failed to parse redis connection string")
	ErrRedisNotReady          = errors.New("redis did not become ready within the given attempts")
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongodb")
	ErrHealthcheckFailed      = errors.New("database healthcheck failed")
)
