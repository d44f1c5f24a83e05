package config

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing request behavior per site, e.g. a session
// cookie that unlocks full search results or CSS selector overrides
// after a portal redesign.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when requesting this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// DelaySeconds overrides the global minimum politeness delay for this
	// site. If zero, the global MinDelay is used.
	DelaySeconds int `yaml:"delaySeconds,omitempty"`

	// Selectors overrides the default CSS selectors used by the
	// extractors. Keys are selector names (e.g. "card", "price"),
	// values are CSS selector expressions.
	Selectors map[string]string `yaml:"selectors,omitempty"`
}

// File represents the structure of the .zapscraper configuration file.
type File struct {
	// Sites maps hostnames to their site-specific configurations.
	// Keys should be the bare hostname (e.g. "www.zapimoveis.com.br").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific hostname.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	// Start with defaults
	result := cf.Defaults

	// Override with site-specific configuration if present
	if siteConfig, ok := cf.Sites[host]; ok {
		if siteConfig.Cookie != "" {
			result.Cookie = siteConfig.Cookie
		}
		if siteConfig.DelaySeconds != 0 {
			result.DelaySeconds = siteConfig.DelaySeconds
		}
		if len(siteConfig.Headers) > 0 {
			if result.Headers == nil {
				result.Headers = make(map[string]string)
			}
			for k, v := range siteConfig.Headers {
				result.Headers[k] = v
			}
		}
		if len(siteConfig.Selectors) > 0 {
			if result.Selectors == nil {
				result.Selectors = make(map[string]string)
			}
			for k, v := range siteConfig.Selectors {
				result.Selectors[k] = v
			}
		}
	}

	return result
}
