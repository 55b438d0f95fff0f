package dialog

import "fmt"

// User-facing texts. Kept in Russian, matching the clinic's audience.
const (
	msgAlreadyRegistered = "Вы уже зарегистрированы в системе. Мы вам напомним о вашей записи"
	msgNoPhone           = "Вы не отправили свой номер телефона"
	msgPhoneSaved        = "Ваш номер телефона сохранен. Мы вам напомним о вашей записи"
	msgNoSuchOption      = "Нет такого варианта ответа, напишите пожалуйста `да` или `нет`"
	msgRescheduleOffer   = "Перезаписать вас на другое время? Отвечайте `да` или `нет`"
	msgManagerWillCall   = "Скоро вам позвонит менеджер для перезаписи"
	msgDeclineThanks     = "Спасибо, что предупредили, будем вас ждать!"
	msgScorePrompt       = "Оцените нас пожалуйста от 1 до 5!"
	msgReviewTellMore    = "Ого! Мы сожалеем! Расскажите нам, что мы можем улучшить! Мы примем меры!"
	msgReviewThanks      = "Спасибо вам большое за отзыв!"

	// MsgConfirmRequest and friends are sent by the scan coordinator.
	MsgSameDayReminder = "Ждем вас сегодня в время по адресу! Будем рады вас видеть"
	MsgReviewPrompt    = "Вчера вы были у нас, спасибо!\nОцените пожалуйста от 1-5 нас!"
)

// MsgConfirmRequest builds the day-before confirmation request.
func MsgConfirmRequest(start string) string {
	return fmt.Sprintf("Вы записались на %s, подтверждаете запись?", start)
}

func msgGreeting(name string) string {
	if name == "" {
		return "Приветствую! Пришлите ваш номер телефона"
	}
	return fmt.Sprintf("Приветствую %s! Пришлите ваш номер телефона", name)
}

func msgConfirmed(start string) string {
	return fmt.Sprintf("Отлично! Ждем вас в %s", start)
}

func msgRebookingLink(url string) string {
	return fmt.Sprintf("Спасибо, что предупредили! Пожалуйста, перезапишитесь по этой ссылке: %s", url)
}

func msgReviewSiteLink(url string) string {
	return fmt.Sprintf("Отлично, оцените нас на Яндекс.Картах %s на карточку компании", url)
}

func msgFollowup(phone string) string {
	return fmt.Sprintf("Если у вас не получилось записаться онлайн вы можете записаться по номеру телефона: %s", phone)
}
