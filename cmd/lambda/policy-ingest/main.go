// Policy PDF ingestion Lambda entry point, triggered by S3 uploads
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"lender-policy-review/internal/handlers"
	"lender-policy-review/internal/utils"
)

func main() {
	_ = utils.InitLogger(os.Getenv("LOG_LEVEL"))
	defer utils.Sync()

	handler, err := handlers.NewPolicyIngestHandlerFromEnv(context.Background())
	if err != nil {
		panic("Failed to create handler: " + err.Error())
	}
	defer handler.Close()

	lambda.Start(handler.Handle)
}
