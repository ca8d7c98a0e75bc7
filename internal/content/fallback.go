package content

import "soulverse/internal/occasion"

// verseFallback never fails: occasion entry, then mood entry, then the default.
func verseFallback(c Context) Verse {
	if c.Kind == ContextOccasion && c.Occasion != nil {
		if v, ok := occasionVerse(c.Occasion.Name); ok {
			return v
		}
	}
	if v, ok := moodVerse(c.Mood); ok {
		return v
	}
	return defaultVerse()
}

func occasionVerse(n occasion.Name) (Verse, bool) {
	var v Verse
	switch n {
	case occasion.NewYear:
		v = fv("Lamentations 3:22-23", "His mercies are new every morning. Step into this year trusting the One who is faithful from its first day to its last.", "sunrise over a quiet horizon")
	case occasion.YearEnd:
		v = fv("Psalm 103:2", "Before the year closes, count what God has done. Gratitude turns an ending into a testimony.", "candle light over an open journal")
	case occasion.Christmas:
		v = fv("John 1:14", "The Word became flesh and lived among us. Love came near, so no one has to face life alone.", "warm stable light under a starry sky")
	case occasion.ChristmasEve:
		v = fv("Isaiah 9:6", "Tonight we wait with the whole world for the Prince of Peace. Prepare room for Him.", "single star above a sleeping village")
	case occasion.Epiphany:
		v = fv("Matthew 2:10", "The wise men rejoiced when they saw the star. God still guides those who seek Him.", "bright star leading travellers across dunes")
	case occasion.Assumption:
		v = fv("Luke 1:48", "God looks with favour on the humble. Your faithfulness is seen.", "soft clouds opening to light")
	case occasion.AllSaints:
		v = fv("Hebrews 12:1", "A great cloud of witnesses surrounds us. Run your race with endurance.", "runners on a path lined with light")
	case occasion.PalmSunday:
		v = fv("Matthew 21:9", "Hosanna to the Son of David. Welcome the King who comes in humility.", "palm branches on a dusty road")
	case occasion.MaundyThursday:
		v = fv("John 13:34", "Love one another as He loved you. Service is the shape of His love.", "basin and towel beside a table")
	case occasion.GoodFriday:
		v = fv("John 3:16", "God so loved the world that He gave His Son. Today we remember the cost of that love.", "a cross against an evening sky")
	case occasion.Easter:
		v = fv("1 Corinthians 15:20", "Christ is risen, the first fruits of those who sleep. Death does not have the last word.", "empty tomb at dawn")
	case occasion.Ascension:
		v = fv("Acts 1:11", "He was taken up, and He will return. Live today as a witness of that promise.", "light breaking through high clouds")
	case occasion.Pentecost:
		v = fv("Acts 2:4", "The Spirit fills ordinary people with extraordinary power. Ask to be filled again today.", "flames of light over a gathered crowd")
	case occasion.Sunday:
		v = fv("Psalm 95:1-2", "Come, let us sing for joy to the Lord. Rest and worship belong together.", "morning light through church windows")
	case occasion.MonthStart:
		v = fv("Psalm 65:11", "You crown the year with your bounty. Begin this month expecting His provision.", "fields ready for harvest")
	default:
		return Verse{}, false
	}
	return v, true
}

func moodVerse(m Mood) (Verse, bool) {
	var v Verse
	switch m {
	case MoodPeace:
		v = fv("John 14:27", "Jesus gives a peace the world cannot give. Let your heart rest in it today.", "still lake at dawn")
	case MoodJoy:
		v = fv("Psalm 118:24", "This is the day the Lord has made. Let your joy become praise.", "sunflowers in a bright field")
	case MoodSadness:
		v = fv("Psalm 34:18", "The Lord is close to the brokenhearted. You are not alone in your sorrow.", "gentle rain with light breaking through")
	case MoodAnxiety:
		v = fv("Philippians 4:6-7", "Bring every worry to God in prayer. His peace will guard your heart and mind.", "calm sea under a clearing sky")
	case MoodGratitude:
		v = fv("1 Thessalonians 5:18", "Give thanks in all circumstances. Gratitude opens our eyes to His goodness.", "open hands holding light")
	default:
		return Verse{}, false
	}
	return v, true
}

func fv(reference, reflection, hint string) Verse {
	return Verse{Reference: reference, Reflection: reflection, VisualHint: hint, Source: SourceFallback}
}

func defaultVerse() Verse {
	return Verse{
		Reference:  "Jeremiah 29:11",
		Reflection: "God holds plans of peace and hope for you. Trust Him with today.",
		VisualHint: "path through a sunlit forest",
		Source:     SourceFallback,
	}
}

// prayerFallback follows the same order as verseFallback, per prayer kind.
func prayerFallback(kind PrayerKind, c Context) Prayer {
	if c.Kind == ContextOccasion && c.Occasion != nil {
		if p, ok := occasionPrayer(kind, c.Occasion.Name); ok {
			return p
		}
	}
	if p, ok := moodPrayer(kind, c.Mood); ok {
		return p
	}
	return defaultPrayer(kind)
}

func occasionPrayer(kind PrayerKind, n occasion.Name) (Prayer, bool) {
	var p Prayer
	switch {
	case kind == PrayerMorning && n == occasion.NewYear:
		p = Prayer{Title: "A new year with You", Text: "Lord, at the start of this year I give You my plans, my fears and my hopes. Lead me in every step.", Blessing: "May His faithfulness go before you all year.", SuggestedVerse: "Lamentations 3:22-23"}
	case kind == PrayerMorning && n == occasion.Sunday:
		p = Prayer{Title: "The Lord's day", Text: "Father, on this day of rest I come to worship You. Renew my strength and my joy in Your presence.", Blessing: "May your rest be full of His presence.", SuggestedVerse: "Psalm 118:24"}
	case kind == PrayerEvening && n == occasion.YearEnd:
		p = Prayer{Title: "Thanks for this year", Text: "Lord, thank You for every day of this year, the easy ones and the hard ones. You were faithful in all of them.", Blessing: "May you close this year in His peace.", SuggestedVerse: "Psalm 103:2"}
	case kind == PrayerEvening && n == occasion.Sunday:
		p = Prayer{Title: "Sunday evening rest", Text: "Father, thank You for this day set apart. Prepare my heart for the week ahead and keep me in Your peace tonight.", Blessing: "Sleep in the shelter of His love.", SuggestedVerse: "Psalm 4:8"}
	default:
		return Prayer{}, false
	}
	p.Kind = kind
	p.Source = SourceFallback
	return p, true
}

func moodPrayer(kind PrayerKind, m Mood) (Prayer, bool) {
	var p Prayer
	switch {
	case kind == PrayerMorning && m == MoodPeace:
		p = Prayer{Title: "Peace for today", Text: "Lord, fill this day with Your peace. Guard my thoughts and guide my words.", Blessing: "May His peace go with you.", SuggestedVerse: "John 14:27"}
	case kind == PrayerMorning && m == MoodJoy:
		p = Prayer{Title: "Joy in the morning", Text: "Father, thank You for this new day. Let my joy be a light for the people I meet.", Blessing: "The joy of the Lord is your strength.", SuggestedVerse: "Nehemiah 8:10"}
	case kind == PrayerEvening && m == MoodPeace:
		p = Prayer{Title: "Peace tonight", Text: "Lord, I lay down the worries of this day. Give me restful sleep under Your care.", Blessing: "Rest in His peace tonight.", SuggestedVerse: "Psalm 4:8"}
	case kind == PrayerEvening && m == MoodGratitude:
		p = Prayer{Title: "A grateful evening", Text: "Father, thank You for every gift of this day, seen and unseen.", Blessing: "May gratitude carry you into sleep.", SuggestedVerse: "1 Thessalonians 5:18"}
	default:
		return Prayer{}, false
	}
	p.Kind = kind
	p.Source = SourceFallback
	return p, true
}

func defaultPrayer(kind PrayerKind) Prayer {
	if kind == PrayerEvening {
		return Prayer{
			Kind:           kind,
			Title:          "Evening prayer",
			Text:           "Lord, thank You for walking with me today. Forgive what I got wrong and keep me in Your peace through the night.",
			Blessing:       "May the Lord keep you tonight.",
			SuggestedVerse: "Psalm 4:8",
			Source:         SourceFallback,
		}
	}
	return Prayer{
		Kind:           PrayerMorning,
		Title:          "Morning prayer",
		Text:           "Lord, I give You this day. Guide my steps and let Your love shine through me.",
		Blessing:       "May the Lord bless your day.",
		SuggestedVerse: "Psalm 5:3",
		Source:         SourceFallback,
	}
}
