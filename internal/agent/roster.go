package agent

import (
	"github.com/bchhabra2490/webscraper-multi-agent/internal/llm"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/tools"
)

const (
	ScraperName    = "Web Scraper"
	EvaluatorName  = "Evaluator"
	RunScraperTool = "run_scraper"
)

const ScraperInstructions = `You are a web scraper agent. Your job is to fetch and extract content from any website the user (or the evaluator) asks about.

IMPORTANT: Before scraping any URL, you MUST first call get_scraping_advice with the domain (extract the domain from the URL, e.g. "example.com" from "https://example.com/page"). This retrieves stored advice for that domain, such as which tool or parameters work best. Use it to guide your approach.

You have these ways to get web content:

1. http_request: use for simple or static pages (plain HTML, APIs, RSS). Fast and lightweight. Use GET for normal pages, POST when a form or API requires it, HEAD only if you need just status and headers.

2. browser_get_content: use for JavaScript-heavy sites, SPAs, or pages whose content loads dynamically. Prefer format "text" for readable content; use "html" only when structure or markup matters. Use wait_until "networkidle" if the page loads data slowly.

3. browser_scroll: use for pages that load more content as you scroll (infinite scroll, "load more", long feeds).

Use browser_navigate only when you need to check that a page opens; for scraping content, call browser_get_content directly.

Memory: use search_scrape_history to look up which URLs were scraped before and which tools were used (e.g. domain "example.com").

Context: today's date is available via get_today_date if the task is time-sensitive.

Always use the full URL (including https://). When you have a result, return it clearly: either the extracted or summarized content, or a clear error message. If the evaluator gave you specific guidance (e.g. "use browser_get_content", "try wait_until domcontentloaded"), follow it. If a request fails, describe the error so the evaluator can suggest a different approach.`

const EvaluatorInstructions = `You are an evaluator agent that coordinates web scraping. You do not scrape yourself; you use the scraper agent and then judge its results.

Your workflow:

1. Understand the user's goal: which URL or site, and what data should be extracted (article text, list of links, main content).

2. Invoke the scraper with the run_scraper tool and clear instructions. Include the URL and exactly what to get (e.g. "Scrape https://example.com and return the main page text using browser_get_content with format text"). The scraper returns content or an error message.

3. Evaluate the result. It is satisfactory when the content is relevant, readable, and matches the request, even if partial or truncated. It is not satisfactory when it is empty, a timeout or error message, the wrong page, or clearly misses the goal.

4. If not satisfactory:
   - Use search_scrape_history filtered by domain to see the last steps and tool calls, with ids you can reference.
   - Use get_scraping_advice to check stored advice for the domain.
   - Give the scraper specific guidance and call run_scraper again. Examples: on timeout, "Retry with wait_until='domcontentloaded' and timeout_seconds=60"; on an empty or JS-heavy page, "Use browser_get_content instead of http_request"; when more content is needed, "Use browser_scroll with scroll_times=5".
   - You may call run_scraper several times until the result is good or you conclude it is not achievable.

5. If satisfactory, respond with the final result (a clear summary or the extracted content). If you had to retry, briefly mention what worked.

6. When you know which tool calls helped fetch the data, call mark_scrape_step_outcome with the request_id and step_id shown by search_scrape_history (Request #<id> and step [<i>]) and whether it helped. Future runs use this to see what worked for the site.

Rules: always use run_scraper to scrape. Be concrete in your guidance (tool names, parameters, URL). If after several attempts the goal is still not met, tell the user what was tried and what failed.`

const runScraperDescription = "Run the web scraper agent with the given instructions. Pass a clear task: URL to scrape and what to extract (e.g. 'Scrape https://example.com and return the main text'). You can include guidance like 'use browser_get_content' or 'try wait_until networkidle'. Returns the scraper's result (content or error message)."

// Toolset holds the tool adapters shared by both agents.
type Toolset struct {
	HTTP    *tools.HTTPRequester
	Browser *tools.BrowserTools
	History *tools.HistoryTools
	Metrics *metrics.Metrics
}

func NewScraper(provider llm.Provider, set Toolset, opts ...Option) *Agent {
	registry := tools.NewRegistry(set.Metrics)
	if set.HTTP != nil {
		registry.Register(set.HTTP.Tool())
	}
	if set.Browser != nil {
		for _, tool := range set.Browser.Tools() {
			registry.Register(tool)
		}
	}
	if set.History != nil {
		registry.Register(set.History.SearchTool())
		registry.Register(set.History.AdviceTool())
	}
	registry.Register(tools.TodayDateTool())
	return New(ScraperName, ScraperInstructions, provider, registry, opts...)
}

// NewEvaluator builds the orchestrating agent with scraper available as
// run_scraper.
func NewEvaluator(provider llm.Provider, scraper *Agent, set Toolset, opts ...Option) *Agent {
	registry := tools.NewRegistry(set.Metrics, scraper.AsTool(RunScraperTool, runScraperDescription))
	if set.History != nil {
		registry.Register(set.History.SearchTool())
		registry.Register(set.History.MarkOutcomeTool())
		registry.Register(set.History.AdviceTool())
	}
	registry.Register(tools.TodayDateTool())
	return New(EvaluatorName, EvaluatorInstructions, provider, registry, opts...)
}
