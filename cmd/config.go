package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "vss2git"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	vssDirFlagName         = "vss-dir"
	projectFlagName        = "project"
	outDirFlagName         = "out-dir"
	excludeFlagName        = "exclude"
	emailDomainFlagName    = "email-domain"
	defaultCommentFlagName = "default-comment"
	anyCommentFlagName     = "any-comment-seconds"
	sameCommentFlagName    = "same-comment-seconds"
	transcodeFlagName      = "transcode"
	annotatedTagsFlagName  = "annotated-tags"
	exportRootFlagName     = "export-root"
	fromDateFlagName       = "from-date"
	toDateFlagName         = "to-date"
	ignoreErrorsFlagName   = "ignore-errors"
	dryRunFlagName         = "dry-run"
	interactiveFlagName    = "interactive"
	reportFlagName         = "report"

	vssDirKey         = "source.dir"
	projectKey        = "source.project"
	excludeKey        = "source.exclude"
	transcodeKey      = "source.transcode"
	outDirKey         = "output.dir"
	exportRootKey     = "output.export_root"
	emailDomainKey    = "git.email_domain"
	defaultCommentKey = "git.default_comment"
	annotatedTagsKey  = "git.annotated_tags"
	anyCommentKey     = "group.any_comment_seconds"
	sameCommentKey    = "group.same_comment_seconds"
	ignoreErrorsKey   = "run.ignore_errors"
	interactiveKey    = "run.interactive"

	defaultProject         = "$/"
	defaultEmailDomain     = "localhost"
	defaultCommentFallback = "Migrated from VSS"
	defaultAnyCommentSecs  = 30
	defaultSameCommentSecs = 600

	envPrefix = "VSS2GIT"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = "vss2git.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(vssDirKey, "")
	viper.SetDefault(projectKey, defaultProject)
	viper.SetDefault(excludeKey, []string{})
	viper.SetDefault(transcodeKey, false)
	viper.SetDefault(outDirKey, "")
	viper.SetDefault(exportRootKey, false)
	viper.SetDefault(emailDomainKey, defaultEmailDomain)
	viper.SetDefault(defaultCommentKey, defaultCommentFallback)
	viper.SetDefault(annotatedTagsKey, false)
	viper.SetDefault(anyCommentKey, defaultAnyCommentSecs)
	viper.SetDefault(sameCommentKey, defaultSameCommentSecs)
	viper.SetDefault(ignoreErrorsKey, false)
	viper.SetDefault(interactiveKey, false)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger. The log file doubles as
// the append-only record of operator-facing progress and diagnostic lines.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
