// Package openaistt transcribes clips with the hosted OpenAI speech to text
// API through the official openai-go SDK.
package openaistt
