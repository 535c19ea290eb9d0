package wire

import "kstor/internal/model"

// --- ping / pong -----------------------------------------------------

type PingArgs struct {
	Payload string `json:"payload"`
}

type PongArgs struct {
	Payload string `json:"payload"`
}

// --- groups ------------------------------------------------------------

type GroupCreateArgs struct {
	Name string `json:"name"`
}

type GroupCreatedArgs struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
}

type GroupRenameArgs struct {
	GroupID string `json:"group_id"`
	NewName string `json:"new_name"`
}

type GroupDeleteArgs struct {
	GroupID string `json:"group_id"`
}

type GroupSearchArgs struct {
	NameGlob string `json:"name_glob"`
}

type GroupSummary struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
}

type GroupListArgs struct {
	Groups []GroupSummary `json:"groups"`
}

type GroupGetArgs struct {
	GroupID string `json:"group_id"`
}

type UserSummary struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
	Name   string `json:"name"`
}

type GroupInfoArgs struct {
	GroupID string        `json:"group_id"`
	Name    string        `json:"name"`
	Members []UserSummary `json:"members"`
}

type GroupAddUserArgs struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type GroupRemoveUserArgs struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type GroupUpdatedArgs struct {
	GroupID string `json:"group_id"`
}

type GroupDeletedArgs struct {
	GroupID string `json:"group_id"`
}

// --- users ---------------------------------------------------------

type UserCreateArgs struct {
	Login                string `json:"login"`
	Name                 string `json:"name"`
	TokenLifespanSeconds int64  `json:"token_lifespan_seconds"`
}

type UserCreatedArgs struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
	Token  string `json:"token"`
}

type UserUpdatedArgs struct {
	UserID string `json:"user_id"`
}

type UserChangePasswordArgs struct {
	NewPassword string `json:"new_password"`
}

type UserPasswordChangedArgs struct {
	UserID string `json:"user_id"`
}

// --- secrets -----------------------------------------------------------

type SecretCreateArgs struct {
	GroupIDs  []string         `json:"group_ids"`
	Plaintext string           `json:"plaintext"`
	Meta      model.SecretMeta `json:"meta"`
}

type SecretCreatedArgs struct {
	SecretID string `json:"secret_id"`
}

type SecretSearchArgs struct {
	Meta model.SecretMeta `json:"meta"`
}

type SecretSummary struct {
	SecretID string           `json:"secret_id"`
	Meta     model.SecretMeta `json:"metadata"`
}

type SecretListArgs struct {
	Secrets []SecretSummary `json:"secrets"`
}

type SecretUnlockArgs struct {
	SecretID string `json:"secret_id"`
}

type SecretValueArgs struct {
	SecretID    string           `json:"secret_id"`
	Plaintext   string           `json:"plaintext"`
	Metadata    model.SecretMeta `json:"metadata"`
	ValueAuthor UserSummary      `json:"value_author"`
	MetaAuthor  UserSummary      `json:"meta_author"`
	Groups      []GroupSummary   `json:"groups"`
}

type SecretUpdateMetaArgs struct {
	SecretID string           `json:"secret_id"`
	Meta     model.SecretMeta `json:"meta"`
}

type SecretUpdateValueArgs struct {
	SecretID  string `json:"secret_id"`
	Plaintext string `json:"plaintext"`
}

type SecretUpdatedArgs struct {
	SecretID string `json:"secret_id"`
}

type SecretDeleteArgs struct {
	SecretID string `json:"secret_id"`
}

type SecretDeletedArgs struct {
	SecretID string `json:"secret_id"`
}
