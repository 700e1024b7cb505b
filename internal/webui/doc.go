// Package webui serves the interactive upload page and its JSON API.
//
// Uploads are streamed to a staged temp file and handed to the workflow
// runner in the background. Only one job runs at a time; a second upload
// while one is active gets 409. Job state lives in an in-memory registry and
// finished jobs are pruned by a janitor that runs in the same errgroup as the
// HTTP server.
//
// Routes:
//
//	GET  /                        embedded upload page
//	POST /api/jobs                multipart upload (field "file")
//	GET  /api/jobs/{id}           status, progress, counts, warning, error
//	GET  /api/jobs/{id}/report    markdown preview
//	GET  /api/jobs/{id}/download  <stem>_transcript.md attachment
//	GET  /healthz                 liveness
//	GET  /metrics                 Prometheus exposition
package webui
