package gcp

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseConfig selects the project and credentials used to verify ID tokens.
// Empty fields fall back to Application Default Credentials.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// GetApp creates a Firebase App instance.
func GetApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	var appCfg *firebase.Config
	if id := strings.TrimSpace(cfg.ProjectID); id != "" {
		appCfg = &firebase.Config{ProjectID: id}
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}

	return firebase.NewApp(ctx, appCfg, opts...)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context, cfg FirebaseConfig) (*firebaseauth.Client, error) {
	app, err := GetApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return fbAuth, nil
}
