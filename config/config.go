package config

import (
	"os"
	"path"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

var defaultConfigPath = "./config/config.yaml"
var defaultDotEnv = ".env"

// LoadConfig fills cfg (a pointer to a tagged struct) in this order:
// .env file into the process environment, the yaml file named by CONFIG or
// ./config/config.yaml, its ".local" sibling, and finally the environment.
func LoadConfig(cfg interface{}) error {
	if err := loadDotEnv(defaultDotEnv); err != nil {
		return err
	}

	configFile, exists := os.LookupEnv("CONFIG")
	if !exists {
		currentDir, _ := os.Getwd()
		candidate := path.Join(currentDir, defaultConfigPath)
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			configFile = candidate
		case !os.IsNotExist(err):
			return errors.Er(err, "config file %s", candidate)
		default:
			log.Debugf("config file not found, reading environment only")
			return errors.Er(cleanenv.ReadEnv(cfg), "config env")
		}
	}

	if err := cleanenv.ReadConfig(configFile, cfg); err != nil {
		return errors.Er(err, "config file %s", configFile)
	}
	localConfigFile := configFile[:len(configFile)-len(path.Ext(configFile))] + ".local" + path.Ext(configFile)
	if _, err := os.Stat(localConfigFile); err == nil {
		if err := cleanenv.ReadConfig(localConfigFile, cfg); err != nil {
			return errors.Er(err, "config file %s", localConfigFile)
		}
	}

	return errors.Er(cleanenv.ReadEnv(cfg), "config env")
}

// loadDotEnv exports variables from file without overriding ones already set.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); err != nil {
		return nil
	}
	return errors.Er(godotenv.Load(file), "load %s", file)
}

// Usage describes every variable cfg reads, for --help style output.
func Usage(cfg interface{}) (string, error) {
	text, err := cleanenv.GetDescription(cfg, nil)
	return text, errors.Er(err, "config description")
}
