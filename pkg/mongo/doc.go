// Package mongo connects to MongoDB with the v2 driver.
//
// Config is populated from MONGODB_* environment variables. Connect retries
// until the server answers a ping or the attempts run out, and
// ConnectDatabase returns the configured database directly:
//
//	db, err := mongo.ConnectDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
// IsDuplicateKeyError and IsNotFoundError classify driver errors for storage
// code that maps them to its own sentinels.
package mongo
