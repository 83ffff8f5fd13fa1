// Presigned upload URL Lambda entry point
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

	handler, err := handlers.NewPresignedURLHandlerFromEnv(context.Background())
	if err != nil {
		panic("Failed to create handler: " + err.Error())
	}

	lambda.Start(handler.Handle)
}
