package settings

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

const (
	KeyDatabaseHost      = "db_storage_database_host"
	KeyDatabasePort      = "db_storage_database_port"
	KeyDatabaseUser      = "db_storage_database_user"
	KeyDatabasePassword  = "db_storage_database_password"
	KeyDefaultDatabase   = "db_storage_default_database"
	KeyDefaultCollection = "db_storage_default_collection"
	KeySaveFullImage     = "db_storage_save_full_image"
	KeyDebugMode         = "db_storage_debug_mode"
	KeyDriver            = "db_storage_driver"
	KeySqliteFile        = "db_storage_sqlite_file"
	KeyDiscordToken      = "db_storage_discord_token"
	KeyDiscordChannel    = "db_storage_discord_channel"
)

const (
	DriverMongoDB = "mongodb"
	DriverSqlite  = "sqlite"
)

// Host settings that fall back to the environment when the settings file is silent.
var envFallbacks = map[string]string{
	KeyDatabaseHost:     "DB_HOST",
	KeyDatabasePort:     "DB_PORT",
	KeyDatabaseUser:     "DB_USER",
	KeyDatabasePassword: "DB_PASS",
}

type Settings struct {
	DatabaseHost      string `mapstructure:"db_storage_database_host"`
	DatabasePort      int    `mapstructure:"db_storage_database_port"`
	DatabaseUser      string `mapstructure:"db_storage_database_user"`
	DatabasePassword  string `mapstructure:"db_storage_database_password"`
	DefaultDatabase   string `mapstructure:"db_storage_default_database"`
	DefaultCollection string `mapstructure:"db_storage_default_collection"`
	SaveFullImage     bool   `mapstructure:"db_storage_save_full_image"`
	DebugMode         bool   `mapstructure:"db_storage_debug_mode"`
	Driver            string `mapstructure:"db_storage_driver"`
	SqliteFile        string `mapstructure:"db_storage_sqlite_file"`
	DiscordToken      string `mapstructure:"db_storage_discord_token"`
	DiscordChannel    string `mapstructure:"db_storage_discord_channel"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabaseHost, "localhost")
	v.SetDefault(KeyDatabasePort, 27017)
	v.SetDefault(KeyDatabaseUser, "")
	v.SetDefault(KeyDatabasePassword, "")
	v.SetDefault(KeyDefaultDatabase, "StableDiffusion")
	v.SetDefault(KeyDefaultCollection, "Images")
	v.SetDefault(KeySaveFullImage, true)
	v.SetDefault(KeyDebugMode, false)
	v.SetDefault(KeyDriver, DriverMongoDB)
	v.SetDefault(KeySqliteFile, "")
	v.SetDefault(KeyDiscordToken, "")
	v.SetDefault(KeyDiscordChannel, "")
}

// Load reads the settings file at configFile, if given, and fills in the
// connection settings it does not set from DB_HOST, DB_PORT, DB_USER and DB_PASS.
func Load(configFile string) (*Settings, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)

		err := v.ReadInConfig()
		if err != nil {
			return nil, fmt.Errorf("reading settings file %s: %w", configFile, err)
		}
	}

	for key, env := range envFallbacks {
		if v.InConfig(key) {
			continue
		}

		if value, ok := os.LookupEnv(env); ok {
			v.Set(key, value)
		}
	}

	var s Settings

	err := v.Unmarshal(&s)
	if err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	err = s.Validate()
	if err != nil {
		return nil, err
	}

	return &s, nil
}

func (s *Settings) Validate() error {
	switch s.Driver {
	case DriverMongoDB, DriverSqlite:
	default:
		return fmt.Errorf("unknown storage driver %q", s.Driver)
	}

	if s.DefaultDatabase == "" || s.DefaultCollection == "" {
		return errors.New("default database and collection names are required")
	}

	if s.Driver == DriverMongoDB && (s.DatabaseHost == "" || s.DatabasePort <= 0) {
		return errors.New("database host and port are required")
	}

	return nil
}
