package engine

// Show states
const (
	StateNotStarted              = "not_started"
	StateWaitingForPlayers       = "waiting_for_players"
	StateMedia                   = "media"
	StateRoundPlaying            = "round_playing"
	StateQuestionPlaying         = "question_playing"
	StateAuction                 = "auction"
	StateRevealShowing           = "reveal_showing"
	StateWaitStats               = "wait_stats"
	StateShowingStats            = "showing_stats"
	StateVoting                  = "voting"
	StateShop                    = "shop"
	StateApplyingTargetModifiers = "applying_target_modifiers"
	StateFinished                = "finished"
	StateShowingScenarioStats    = "showing_scenario_stats"
	StatePause                   = "pause"
)

// Show triggers
const (
	TriggerStartRequested                = "start_requested"
	TriggerPlayerIdentified              = "player_identified"
	TriggerAllPlayersReady               = "all_players_ready"
	TriggerMediaEnded                    = "media_ended"
	TriggerRoundStarted                  = "round_started"
	TriggerAuctionStarted                = "auction_started"
	TriggerAuctionCompleted              = "auction_completed"
	TriggerRoundTimeout                  = "round_timeout"
	TriggerQuestionCompleted             = "question_completed"
	TriggerRevealShowed                  = "reveal_showed"
	TriggerStatsRequested                = "stats_requested"
	TriggerStatsDisplayed                = "stats_displayed"
	TriggerVotingCompleted               = "voting_completed"
	TriggerShopEnded                     = "shop_ended"
	TriggerShopTimeout                   = "shop_timeout"
	TriggerApplyTargetModifiersCompleted = "apply_target_modifiers_completed"
	TriggerSkip                          = "skip"
	TriggerEndRequested                  = "end_requested"
	TriggerPauseRequested                = "pause_requested"
	TriggerResumeRequested               = "resume_requested"
)
