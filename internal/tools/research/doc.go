// Package research provides literature and web search tools.
//
// Tools:
//   - academic_search: query the backend's academic paper index
//   - web_search: DuckDuckGo HTML search, no API key required
package research
