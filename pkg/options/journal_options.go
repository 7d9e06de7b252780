package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*JournalOptions)(nil)

// JournalOptions configures the sqlite operation journal. An empty Path
// disables the journal.
type JournalOptions struct {
	Path string `json:"path" mapstructure:"path"`
}

func NewJournalOptions() *JournalOptions {
	return &JournalOptions{}
}

func (o *JournalOptions) Validate() []error {
	return nil
}

func (o *JournalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, join("journal.path", prefixes...), o.Path, "Path of the sqlite operation journal (empty disables it).")
}
