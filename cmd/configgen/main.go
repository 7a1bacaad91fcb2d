package main

import (
	"flag"

	"github.com/danmuck/edgegate/internal/config"
	"github.com/danmuck/edgegate/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	output := flag.String("output", "cmd/gatewayd/config.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/gatewayd/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime()
	if *validate {
		if _, err := config.LoadGatewayConfig(*input); err != nil {
			log.Fatal().Err(err).Str("path", *input).Msg("configgen validation failed")
		}
		log.Info().Str("path", *input).Msg("validated gateway config")
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Str("path", *output).Msg("configgen write failed")
	}
	log.Info().Str("path", *output).Msg("wrote gateway config template")
}
