// package tasks implements the show-list update pipelines against MyAnimeList.
//
// The core abstraction is Engine, which orchestrates the preview, confirm, and
// snapshot operations: free-text lines are parsed into intents, resolved
// against the remote catalog, and applied (or reported) item by item with
// fixed pacing between remote calls. Operations emit progress updates via
// channels for non-blocking status reporting to CLI/UI layers.
package tasks
