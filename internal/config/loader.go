package config

import (
	"github.com/anthonyraymond/joal-seeder/internal/logs"
	"github.com/anthonyraymond/joal-seeder/internal/validationutils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	torrentFolder          = "torrents"
	archivedTorrentFolders = torrentFolder + string(os.PathSeparator) + "archived"
	appConfigFile          = "config.yml"
)

type Loader struct {
	configLocation string
}

// NewLoader reads its files from configDir, or from the user config folder when configDir is blank.
func NewLoader(configDir string) (*Loader, error) {
	configLocation := configDir

	var err error
	if strings.TrimSpace(configLocation) == "" {
		configLocation, err = getDefaultConfigFolder()
		if err != nil {
			return nil, errors.Wrap(err, "config loader: failed to resolve default config folder")
		}
	}
	configLocation, err = filepath.Abs(configLocation)
	if err != nil {
		return nil, errors.Wrapf(err, "config loader: failed to transform '%s' to an absolute path", configLocation)
	}
	return &Loader{configLocation: configLocation}, nil
}

func getDefaultConfigFolder() (string, error) {
	// Windows => %AppData%/joal
	// Mac     => $HOME/Library/Application Support/joal
	// Linux   => $XDG_CONFIG_HOME/joal or $HOME/.config/joal
	dir, err := os.UserConfigDir()
	return filepath.Join(dir, "joal"), err
}

// LoadConfigAndInitIfNeeded creates the folder structure and a default config file when they are missing, then
// parses the config file over the default values. A config that can not be parsed or is invalid is a
// validationutils.FatalConfigurationError.
func (l *Loader) LoadConfigAndInitIfNeeded() (*JoalConfig, error) {
	if hasInitialSetup, err := hasInitialSetup(l.configLocation); err != nil {
		return nil, err
	} else if !hasInitialSetup {
		logs.GetLogger().Info("config loader: initializing config folder", zap.String("folder", l.configLocation))
		if err := initialSetup(l.configLocation); err != nil {
			return nil, err
		}
	}

	appConfig := AppConfig{}.Default()
	if err := parseIntoDefault(filepath.Join(l.configLocation, appConfigFile), appConfig); err != nil {
		return nil, validationutils.NewFatalConfigurationError("config", err)
	}
	if err := validationutils.ValidateStruct("config", appConfig); err != nil {
		return nil, err
	}

	return &JoalConfig{
		TorrentsDir:         filepath.Join(l.configLocation, torrentFolder),
		ArchivedTorrentsDir: filepath.Join(l.configLocation, archivedTorrentFolders),
		App:                 appConfig,
	}, nil
}

// Check if all minimal required files are present on disk
func hasInitialSetup(rootConfigFolder string) (bool, error) {
	requiredPath := []string{
		rootConfigFolder,
		filepath.Join(rootConfigFolder, torrentFolder),
		filepath.Join(rootConfigFolder, archivedTorrentFolders),
		filepath.Join(rootConfigFolder, appConfigFile),
	}

	for _, dir := range requiredPath {
		_, err := os.Stat(dir)
		if err != nil && !os.IsNotExist(err) {
			return false, errors.Wrapf(err, "failed to read folder '%s'", dir)
		}
		if os.IsNotExist(err) {
			return false, nil
		}
	}

	return true, nil
}

// install all minimal required files to run, an existing config file is left untouched
func initialSetup(rootConfigFolder string) error {
	requiredDirectories := []string{
		rootConfigFolder,
		filepath.Join(rootConfigFolder, torrentFolder),
		filepath.Join(rootConfigFolder, archivedTorrentFolders),
	}

	for _, dir := range requiredDirectories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create folder '%s'", dir)
		}
	}

	configFile := filepath.Join(rootConfigFolder, appConfigFile)
	if _, err := os.Stat(configFile); err == nil {
		return nil
	}
	return saveToFile(configFile, AppConfig{}.Default())
}

func parseIntoDefault(configFilePath string, defaultValue interface{}) error {
	f, err := os.Open(configFilePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open config file '%s'", configFilePath)
	}
	defer func() { _ = f.Close() }()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	err = decoder.Decode(defaultValue)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to parse config file '%s'", configFilePath)
	}
	return nil
}

func saveToFile(configFilePath string, newConf interface{}) error {
	f, err := os.OpenFile(configFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Wrapf(err, "failed to create config file '%s'", configFilePath)
	}
	defer func() { _ = f.Close() }()

	encoder := yaml.NewEncoder(f)
	encoder.SetIndent(2)
	err = encoder.Encode(newConf)
	return errors.Wrapf(err, "failed to write to config file '%s'", configFilePath)
}
