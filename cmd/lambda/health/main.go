// Health Check Lambda entry point
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"lender-policy-review/internal/handlers"
	"lender-policy-review/internal/utils"
)

func main() {
	// Initialize logger
	_ = utils.InitLogger("info")
	defer utils.Sync()

	handler := handlers.NewHealthHandlerFromEnv(context.Background())
	defer handler.Close()

	// Start Lambda
	lambda.Start(handler.Handle)
}
