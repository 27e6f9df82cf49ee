package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrCredentialNotFound = errors.New("no tokens found for this email")
	ErrCredentialInvalid  = errors.New("stored tokens are unusable")
)

// GmailToken is a row of gmail_tokens. Tokens holds the JSON written by the
// OAuth connect flow.
type GmailToken struct {
	Email     string    `json:"email" gorm:"primaryKey"`
	Tokens    string    `json:"-" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GmailToken) TableName() string {
	return "gmail_tokens"
}

// Credential is the decoded OAuth token for one mailbox.
type Credential struct {
	Email string
	Token *oauth2.Token
}

// storedTokens accepts both the googleapis client layout (expiry_date in
// milliseconds) and the oauth2.Token layout (expiry as RFC 3339).
type storedTokens struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ExpiryDate   int64      `json:"expiry_date,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// DecodeTokens parses the tokens column.
func DecodeTokens(raw string) (*oauth2.Token, error) {
	var st storedTokens
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}
	if st.AccessToken == "" && st.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no access or refresh token", ErrCredentialInvalid)
	}

	token := &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	switch {
	case st.Expiry != nil:
		token.Expiry = st.Expiry.UTC()
	case st.ExpiryDate > 0:
		token.Expiry = time.UnixMilli(st.ExpiryDate).UTC()
	}
	if st.Scope != "" {
		token = token.WithExtra(map[string]interface{}{"scope": st.Scope})
	}
	return token, nil
}

// EncodeTokens serializes token in the googleapis client layout.
func EncodeTokens(token *oauth2.Token) (string, error) {
	st := storedTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		st.Scope = scope
	}
	if !token.Expiry.IsZero() {
		st.ExpiryDate = token.Expiry.UnixMilli()
	}
	b, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
