package feed

import (
	"net/url"
	"strings"
	"testing"
)

func TestContentExtractor_ExtractContent_ValidHTML(t *testing.T) {
	extractor := NewContentExtractor()

	htmlContent := `
	<!DOCTYPE html>
	<html>
	<head>
		<title>Test Article</title>
	</head>
	<body>
		<header>
			<h1>Site Header</h1>
			<nav>Navigation</nav>
		</header>
		<main>
			<article>
				<h1>Main Article Title</h1>
				<p>This is the main content of the article. It contains several paragraphs of meaningful text that should be extracted by the readability algorithm.</p>
				<p>This is another paragraph with more content. The readability algorithm should identify this as the main content area and extract it properly.</p>
				<p>Here is some more substantial content to ensure we meet the character threshold. This paragraph adds more context and information that would be valuable to readers.</p>
			</article>
		</main>
		<aside>
			<div>Advertisement</div>
			<div>Related Links</div>
		</aside>
		<footer>
			<p>Copyright 2024</p>
		</footer>
	</body>
	</html>
	`

	pageURL, _ := url.Parse("https://example.com/article")
	result, err := extractor.Run([]byte(htmlContent), pageURL)

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if result == "" {
		t.Errorf("Expected non-empty result")
	}

	// Check that main content is included
	if !strings.Contains(result, "main content of the article") {
		t.Errorf("Expected extracted content to contain main article text")
	}

	// Check that non-content elements are likely excluded
	if strings.Contains(result, "Advertisement") {
		t.Errorf("Expected extracted content to exclude advertisement")
	}

	if strings.Contains(result, "Copyright 2024") {
		t.Errorf("Expected extracted content to exclude footer")
	}

	// Plain text, not HTML
	if strings.Contains(result, "<p>") {
		t.Errorf("Expected tags to be stripped, got: %s", result)
	}
}

func TestContentExtractor_ExtractContent_ScriptAndStyleRemoval(t *testing.T) {
	extractor := NewContentExtractor()

	htmlContent := `
	<!DOCTYPE html>
	<html>
	<head>
		<title>Article with Scripts</title>
		<style>
			body { font-family: Arial; }
			.content { margin: 20px; }
		</style>
	</head>
	<body>
		<script>
			console.log("This script should be removed");
			var trackingCode = "analytics";
		</script>
		<article>
			<h1>Clean Article Content</h1>
			<p>This is the main content that should be extracted without any scripts or styles interfering. The article contains substantial text content that meets the readability algorithm's requirements.</p>
			<p>The content extraction should focus on the meaningful text and ignore technical elements. This paragraph provides additional context and information for readers.</p>
			<p>Here is more substantial content to ensure we meet the character threshold. This article discusses important topics and provides valuable information to readers who are interested in the subject matter.</p>
		</article>
		<script>
			// More JavaScript that should be excluded
			function trackEvent() { }
		</script>
	</body>
	</html>
	`

	pageURL, _ := url.Parse("https://example.com/article")
	result, err := extractor.Run([]byte(htmlContent), pageURL)

	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if result == "" {
		t.Errorf("Expected non-empty result")
	}

	// Check that main content is included
	if !strings.Contains(result, "main content that should be extracted") {
		t.Errorf("Expected extracted content to contain main article text")
	}

	// Check that script content is excluded
	if strings.Contains(result, "console.log") {
		t.Errorf("Expected extracted content to exclude script content")
	}

	if strings.Contains(result, "trackingCode") {
		t.Errorf("Expected extracted content to exclude script variables")
	}

	// Check that style content is excluded
	if strings.Contains(result, "font-family") {
		t.Errorf("Expected extracted content to exclude style content")
	}
}

func TestContentExtractor_MetaDescriptionFallback(t *testing.T) {
	extractor := NewContentExtractor()

	htmlContent := `<!DOCTYPE html>
<html>
<head>
	<title>Thread</title>
	<meta name="description" content="Mijn buurman bouwt een schuur   op de erfgrens. Mag dat?">
</head>
<body></body>
</html>`

	result, err := extractor.Run([]byte(htmlContent), nil)

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "Mijn buurman bouwt een schuur op de erfgrens. Mag dat?" {
		t.Errorf("Expected meta description, got: %q", result)
	}
}

func TestContentExtractor_EmptyData(t *testing.T) {
	extractor := NewContentExtractor()

	for _, data := range [][]byte{nil, {}} {
		result, err := extractor.Run(data, nil)
		if err == nil {
			t.Errorf("Expected error for empty data")
		}
		if result != "" {
			t.Errorf("Expected empty result for empty data")
		}
	}
}
