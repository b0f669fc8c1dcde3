/*
Package openai implements provider.Provider on top of the official OpenAI Go SDK.

Requests leave the SDK through a proxyfetch.Fetcher, so every completion is recorded by the
Tapes proxy and benefits from the fetcher's retry and failover policy:

	fetcher, err := proxyfetch.Build("http://localhost:8080")
	if err != nil {
		return err
	}
	preset, _ := openai.LookupPreset("openai")
	p := openai.New(fetcher, preset.Options("", os.Getenv("OPENAI_API_KEY"))...)

The SDK's built-in retries are turned off; the fetcher decides what is retried.

Any backend that speaks the OpenAI chat completions API works. Presets exist for OpenAI
itself and for Ollama's compatibility endpoint.
*/
package openai
