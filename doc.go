// Package copilotxproxy is a local HTTP proxy that exposes the OpenAI Chat
// Completions, OpenAI Responses, and Anthropic Messages protocols on one
// port and routes every request to GitHub Copilot's internal API, which
// natively speaks only the OpenAI Chat Completions dialect. Editors and
// coding agents written against Anthropic or OpenAI SDKs can thereby reuse
// a GitHub Copilot subscription unchanged.
//
// # Architecture
//
// The proxy is organized as four cooperating components:
//
//   - internal/auth: the credential manager. It owns the two-layer token
//     lifecycle: a long-lived GitHub grant token on disk, exchanged for a
//     short-lived Copilot bearer, refreshed transparently under request
//     load with single-flight semantics.
//   - internal/upstream: the upstream client. A single long-lived HTTP
//     session to the Copilot API serving the models, chat/completions, and
//     responses endpoints, with an in-memory model-list cache.
//   - internal/translator: the protocol translator. Pure functions mapping
//     Anthropic Messages requests, responses, and SSE streams to and from
//     the OpenAI Chat Completions dialect, including full tool-calling and
//     multi-modal content.
//   - internal/responses: the Responses stream rewriter. A stateful SSE
//     filter that assigns stable item identifiers across added/delta/done
//     events, repairing the inconsistent ids the upstream emits.
//
// internal/httpapi wires these into the HTTP surface, and cmd/copilotx is
// the CLI driver (device-flow login, model listing, serve loop).
//
// # Usage
//
// Authenticate once, then serve:
//
//	copilotx auth login
//	copilotx serve
//
// Point an OpenAI SDK at http://127.0.0.1:24680/v1 or an Anthropic SDK at
// http://127.0.0.1:24680, and use your Copilot models as usual.
package copilotxproxy
