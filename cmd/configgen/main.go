package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/danmuck/redclient/internal/config"
)

func main() {
	kind := flag.String("kind", "subscriber", "config kind: subscriber|publisher")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	dump := flag.Bool("dump", false, "print the effective config of -input with defaults applied")
	input := flag.String("input", "", "config path for -validate and -dump")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate || *dump {
		if *input == "" {
			log.Fatal("-input required")
		}
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		if err := cfg.Validate(); err != nil {
			log.Fatal(err)
		}
		if *dump {
			data, err := config.Dump(cfg)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Fprint(os.Stdout, string(data))
			return
		}
		log.Printf("Validated config at %s", *input)
		return
	}

	target := *output
	if target == "" {
		target = *kind + ".toml"
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
