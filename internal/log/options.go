package log

import (
	"errors"
	"strings"
)

const (
	//LevelDebug debug level logging, all messages outputted
	LevelDebug = "DEBUG"
	//LevelInfo info level logging, no debug information
	LevelInfo = "INFO"
	//LevelWarn warning level logging, only recovered errors, and fatal errors
	LevelWarn = "WARN"
	//LevelError error level logging, nothing but errors
	LevelError = "ERROR"

	//FormatText human readable key=value lines
	FormatText = "text"
	//FormatJSON one JSON object per line
	FormatJSON = "json"
)

//Options holds the configuration settings
//for the logging operations.
type Options struct {
	//Path holds the file path to write logs too.
	//If this value is empty, then only STDOUT is used
	Path string `mapstructure:"path" json:"path"`

	//Level sets the minimum level written. One of
	//	DEBUG,INFO,WARN,ERROR
	Level string `mapstructure:"level" json:"level"`

	//Format is either "text" or "json"
	Format string `mapstructure:"format" json:"format"`
}

//DefaultOptions holds the default options
var DefaultOptions = Options{
	Path:   "",
	Level:  LevelInfo,
	Format: FormatText,
}

var (
	//ErrOptionLevel specifies the level field is invalid
	ErrOptionLevel = errors.New("invalid logging level option provided")
	//ErrOptionFormat specifies the format field is invalid
	ErrOptionFormat = errors.New("invalid logging format option provided")
)

//Verify confirms that all the options are valid.
//Levels are matched case-insensitively.
func (o Options) Verify() error {
	switch strings.ToUpper(o.Level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
	default:
		return ErrOptionLevel
	}

	switch o.Format {
	case "", FormatText, FormatJSON:
	default:
		return ErrOptionFormat
	}
	return nil
}

//MergeFrom combines the values from the supplied Options
//into these, only overriding fields that are set.
func (o *Options) MergeFrom(opt Options) error {
	if opt.Path != "" {
		o.Path = opt.Path
	}
	if opt.Level != "" {
		o.Level = opt.Level
	}
	if opt.Format != "" {
		o.Format = opt.Format
	}
	return o.Verify()
}
