package riotapi

// LeagueEntry là một dòng trong bảng xếp hạng trả về từ league-v4.
type LeagueEntry struct {
	SummonerID   string `json:"summonerId"`
	Puuid        string `json:"puuid"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

// LeagueList là payload của các league apex (master trở lên); entry
// trong đó không mang tier nên caller phải tự gán.
type LeagueList struct {
	Tier    string        `json:"tier"`
	Entries []LeagueEntry `json:"entries"`
}

type SummonerDTO struct {
	ID            string `json:"id"`
	Puuid         string `json:"puuid"`
	SummonerLevel int    `json:"summonerLevel"`
}

type MatchDTO struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type MatchInfo struct {
	GameVersion  string           `json:"gameVersion"`
	GameDuration int              `json:"gameDuration"`
	GameCreation int64            `json:"gameCreation"`
	QueueID      int              `json:"queueId"`
	Participants []ParticipantDTO `json:"participants"`
}

type ParticipantDTO struct {
	Puuid                       string `json:"puuid"`
	ChampionID                  int    `json:"championId"`
	ChampionName                string `json:"championName"`
	TeamPosition                string `json:"teamPosition"`
	Win                         bool   `json:"win"`
	Kills                       int    `json:"kills"`
	Deaths                      int    `json:"deaths"`
	Assists                     int    `json:"assists"`
	ChampLevel                  int    `json:"champLevel"`
	GoldEarned                  int    `json:"goldEarned"`
	TotalDamageDealtToChampions int    `json:"totalDamageDealtToChampions"`
	VisionScore                 int    `json:"visionScore"`
	TotalMinionsKilled          int    `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int    `json:"neutralMinionsKilled"`
	SummonerLevel               int    `json:"summonerLevel"`
}

type MasteryDTO struct {
	Puuid          string `json:"puuid"`
	ChampionID     int    `json:"championId"`
	ChampionLevel  int    `json:"championLevel"`
	ChampionPoints int    `json:"championPoints"`
	LastPlayTime   int64  `json:"lastPlayTime"`
}
