package parser

import "regexp"

var (
	// jsonBlockRegex は ```json ... ``` 形式のコードブロック内の JSON をキャプチャします。
	jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")
)
