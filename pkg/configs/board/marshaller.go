package board

import (
	"errors"
	"fmt"
	"os"

	xe "github.com/opst/scalarboard/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

// load scalarboard server config from a file.
//
// args:
//   - filepath: filepath refers a config file.
//
// returns *BoardConfig, error:
//
//	When loading success, returns `(*BoardConfig, nil)`.
//	Otherwise, returns `(nil, error)`.
func LoadBoardConfig(filepath string) (*BoardConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *BoardConfig, err error) {
	var _out *BoardConfigMarshall
	if err := yaml.Unmarshal(conf, &_out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _out == nil {
		return nil, fmt.Errorf("%w: empty", ErrInvalidConfig)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrInvalidConfig, r)
		}
	}()
	out = TrySeal(_out)
	return out, nil
}
