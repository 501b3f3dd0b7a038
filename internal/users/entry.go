package users

import (
	"time"

	"go.yaml.in/yaml/v3"
)

// Entry is one configured user.
//
// TelegramUserID starts unset and is bound at most once, by promotion.
// Among enabled entries at most one should bind a given id; if the
// list violates that, the first match in list order wins.
type Entry struct {
	SystemUser         string     `yaml:"system_user" json:"system_user"`
	Enabled            bool       `yaml:"enabled" json:"enabled"`
	TelegramUserID     *int64     `yaml:"telegram_user_id,omitempty" json:"telegram_user_id,omitempty"`
	PromoteOnFirstAuth bool       `yaml:"promote_on_first_auth,omitempty" json:"promote_on_first_auth,omitempty"`
	PipeDir            string     `yaml:"pipe_dir,omitempty" json:"pipe_dir,omitempty"`
	AllowedUsernames   []string   `yaml:"allowed_usernames,omitempty" json:"allowed_usernames,omitempty"`
	FirstSeenAt        *time.Time `yaml:"first_seen_at,omitempty" json:"first_seen_at,omitempty"`
	LastSeenAt         *time.Time `yaml:"last_seen_at,omitempty" json:"last_seen_at,omitempty"`
}

// UnmarshalYAML applies defaults: an entry is enabled unless the file
// says otherwise.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	type plain Entry
	p := plain{Enabled: true}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}
