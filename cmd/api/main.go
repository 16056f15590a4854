package main

import (
	"github.com/corray333/backend-labs/bakery/internal/app"
	"github.com/corray333/backend-labs/bakery/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewAPIApp().Run()
}
