package intent

import (
	"regexp"

	"github.com/harunnryd/warden/internal/skill"
)

var (
	bashCue = regexp.MustCompile(`(?i)\b(list|show|kill|start|stop|restart|check|monitor|disk|cpu|memory|ram|` +
		`process|port|network|interface|firewall|cron|service|daemon|docker|` +
		`container|systemctl|apt|yum|brew|chmod|chown|mkdir|rm|mv|cp|grep|` +
		`find|tail|head|cat|awk|sed|ping|curl|wget|ssh|scp|tar|zip|unzip|` +
		`ps|top|htop|df|du|free|uname|hostname|whoami|id|groups)\b`)
	pythonCue = regexp.MustCompile(`(?i)\b(api|fetch|request|http|json|parse|calculate|compute|analyze|` +
		`summarize|classify|transform|convert|encode|decode|hash|encrypt|` +
		`decrypt|database|sql|query|pandas|numpy|plot|graph|chart|scrape|` +
		`regex|pattern|format|template|render|generate|predict|model)\b`)
)

// LanguageHint picks the script language a generated skill should use.
// Ambiguous requests get bash.
func LanguageHint(text string) skill.Language {
	if pythonCue.MatchString(text) && !bashCue.MatchString(text) {
		return skill.LanguagePython
	}
	return skill.LanguageBash
}
