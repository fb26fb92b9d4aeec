// Package mongo provides MongoDB connection management for billingkit
// deployments that keep subscription state in MongoDB.
//
// Configuration is environment-driven, connection setup retries with a
// growing interval, and the health check plugs into the probe shape HTTP
// health endpoints and orchestrators expect.
//
// # Usage
//
//	import (
//		"context"
//
//		"github.com/dmitrymomot/billingkit/pkg/mongo"
//	)
//
//	func main() {
//		cfg := mongo.Config{ConnectionURL: "mongodb://localhost:27017"}
//
//		db, err := mongo.NewWithDatabase(context.Background(), cfg, "billing")
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer db.Client().Disconnect(context.Background())
//
//		health := mongo.Healthcheck(db.Client())
//		if err := health(context.Background()); err != nil {
//			log.Println("mongo is unavailable:", err)
//		}
//	}
//
// The subscription store built on this package lives in pkg/mongostore.
//
// # Error Handling
//
// Connection failures join ErrFailedToConnectToMongo with the driver error,
// so errors.Is works against the sentinel while the cause stays visible.
package mongo
