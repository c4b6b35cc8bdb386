package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "campsite"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	// Booking policy: stays of 1-3 days, reserved from 1 day up to 1
	// month ahead of arrival.
	DefaultMaxStayDays = 3
	DefaultMinLeadDays = 1
	DefaultMaxLeadDays = 30

	DefaultKafkaTopic               = "campsite.bookings"
	DefaultKafkaProducerMaxAttempts = 3
	DefaultKafkaProducerBatchWait   = 100 * time.Millisecond

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = time.Minute

	DefaultRequestTimeout = 10 * time.Second
	DefaultIdempotencyTTL = 5 * time.Minute
	DefaultMaxRequestSize = 1 << 20

	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultPaginationLimit = 100
)
