// Package generation defines the boundary between the task core and the
// external content producers. It abstracts the details of LLM API
// integration (Gemini), allowing the scheduler to dispatch book, chapter,
// style, audio, and cover-art work without coupling to specific external
// services.
package generation
