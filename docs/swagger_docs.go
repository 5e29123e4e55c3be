// Package docs holds the top-level Swagger annotations for the
// scanward trigger API. Run `swag init` to regenerate the spec in
// ./swagger after changing endpoint annotations.
//
//go:generate swag init -g swagger_docs.go -o ./swagger --parseDependency --parseInternal
package docs

// @title Scanward API
// @version 1.0.0
// @description Trigger API of the scanward network scanning daemon.
// @description
// @description Scanward runs nmap port scans and topology mappings of a
// @description configured network, on cron schedules or on demand through
// @description this API. Triggers are fire-and-forget: a submission answers
// @description 202 immediately and the job runs in the background. At most
// @description one job per kind runs at a time; a second trigger while one
// @description is active answers 409.
//
// @contact.name Scanward
// @license.name MIT
//
// @BasePath /
// @schemes http
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key authentication. Keys are generated with `scanward keygen`.
//
// @tag.name Jobs
// @tag.description Trigger and inspect scan and topology jobs
// @tag.name Results
// @tag.description Stored scan artifacts and topology documents
// @tag.name System
// @tag.description Health and status
