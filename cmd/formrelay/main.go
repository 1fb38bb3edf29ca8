// cmd/formrelay/main.go
package main

import (
	"context"
	"log"

	"github.com/dalemusser/formrelay/app"
	"github.com/dalemusser/formrelay/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
