// Package appfs embeds the database migrations and the static assets (email templates, password lists).
package appfs

import "embed"

//go:embed migrations/*.sql assets/templates/email/* assets/common-passwords.txt
var FS embed.FS
