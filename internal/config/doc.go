// Package config loads docsearch configuration.
//
// Settings are resolved in order: built-in defaults, a .env file in the
// working directory, an optional YAML file and DOCSEARCH_* environment
// variables. The result is validated before it is returned.
//
//	cfg, err := config.Load("docsearch.yaml")
//	if err != nil {
//	    return err
//	}
//	logger, _ := config.NewLogger(cfg.Log, os.Stderr)
package config
