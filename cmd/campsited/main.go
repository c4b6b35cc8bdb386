package main

import (
	"campsite/internal/bookings/events"
	"campsite/internal/bookings/handler"
	"campsite/internal/bookings/repository"
	"campsite/internal/bookings/service"
	"campsite/internal/bookings/validator"
	"campsite/pkg/app"
	"campsite/pkg/config"
	"campsite/pkg/kafka"
)

const ServiceName = "campsited"

func main() {
	cfg := config.Load(ServiceName)

	cfg.Log.Info("Starting campsite service")
	cfg.SetMongo()

	publisher := initPublisher(cfg)
	defer publisher.Close()

	bookingService := initServices(cfg, publisher)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewBookingHandler(bookingService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config, publisher events.Publisher) service.BookingService {
	bookingValidator := validator.NewBookingValidator(validator.Policy{
		MaxStayDays: cfg.MaxStayDays,
		MinLeadDays: cfg.MinLeadDays,
		MaxLeadDays: cfg.MaxLeadDays,
	}, cfg.Log)
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	dateRepo := repository.NewMongoBookingDateRepository(cfg)
	bookingService := service.NewBookingService(
		bookingRepo,
		dateRepo,
		bookingValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}

// initPublisher falls back to a no-op publisher when no brokers are
// configured, so a single-node deployment runs without Kafka.
func initPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Info("No Kafka brokers configured, booking events disabled")
		return events.NewNoopPublisher()
	}

	producer, err := kafka.NewProducer(kafka.Config{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaTopic,
		MaxAttempts:  cfg.KafkaProducerMaxAttempts,
		BatchTimeout: cfg.KafkaProducerBatchWait,
	})
	if err != nil {
		cfg.Log.Fatal("Failed to initialize Kafka producer", "error", err)
	}

	cfg.Log.Info("Kafka producer initialized", "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(producer, cfg.Log)
}
